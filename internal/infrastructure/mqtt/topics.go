package mqtt

// TopicPrefix is the root of every boardd topic.
const TopicPrefix = "boardd"

// Topics builds the process-level topics owned by this package. Board topics
// belong to the bridge package.
type Topics struct{}

// SystemStatus returns the retained online/offline topic.
//
// Example: boardd/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// All returns a pattern matching every boardd topic.
//
// Pattern: boardd/#
func (Topics) All() string {
	return TopicPrefix + "/#"
}
