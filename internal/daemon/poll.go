package daemon

// refreshMatrices reads the matrix of every known board and streams the ones
// that changed since the last cycle.
//
// A read failure ends the cycle: boards after the failing one are not read
// until the next cycle.
func (w *worker) refreshMatrices() {
	for _, id := range w.sortedBoardIDs() {
		rec := w.boards[id]

		matrix, err := w.daemon.MatrixGet(id)
		if err != nil {
			w.logger.Error("failed to get matrix", "board", id.String(), "error", err)
			return
		}

		if rec.matrix.Equal(matrix) {
			continue
		}

		rec.stream.Push(matrix.Clone())
		rec.matrix = matrix
	}
}
