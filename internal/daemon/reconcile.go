package daemon

// refresh reconciles the known boards with the device inventory.
//
// Every removal is emitted before any addition. Errors from the device abort
// the whole reconciliation before either pass starts. A board whose handle
// cannot be built is logged and skipped; the next refresh tries it again.
func (w *worker) refresh() error {
	if err := w.daemon.Refresh(); err != nil {
		return err
	}

	ids, err := w.daemon.Boards()
	if err != nil {
		return err
	}

	present := make(map[BoardID]struct{}, len(ids))
	for _, id := range ids {
		present[id] = struct{}{}
	}

	// Removed boards
	for _, id := range w.sortedBoardIDs() {
		if _, ok := present[id]; ok {
			continue
		}
		w.events.emit(Event{Kind: EventBoardRemoved, BoardID: id})
		// Matrices still queued would reach the consumer after the removal.
		stream := w.boards[id].stream
		stream.Close()
		stream.Drain()
		delete(w.boards, id)
		w.logger.Info("board removed", "board", id.String())
	}

	// Added boards
	for _, id := range ids {
		if _, ok := w.boards[id]; ok {
			continue
		}

		stream := NewQueue[Matrix]()
		board, err := w.factory.NewBoard(w.daemon, w.client, id, stream)
		if err != nil {
			w.logger.Error("failed to add board", "board", id.String(), "error", err)
			continue
		}

		w.events.emit(Event{Kind: EventBoardAdded, BoardID: id, Board: board})
		w.boards[id] = &boardRecord{stream: stream}
		w.logger.Info("board added", "board", id.String())
	}

	return nil
}
