package deck

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name to enable
// multiple deck servers to safely coexist on a single Redis server.
//
// Key pattern: deck:{instance_name}:{entity}:{uuid}
// Channel pattern: deck:{instance_name}:{event_type}_events

// DocumentKey returns the Redis key for a document hash.
// Pattern: deck:{instance_name}:document:{document_id}
func DocumentKey(instanceName, documentID string) string {
	return fmt.Sprintf("deck:%s:document:%s", instanceName, documentID)
}

// DocumentIndexKey returns the Redis key for the ZSET of all document ids,
// scored by creation time.
// Pattern: deck:{instance_name}:documents
func DocumentIndexKey(instanceName string) string {
	return fmt.Sprintf("deck:%s:documents", instanceName)
}

// DocumentEventsChannel returns the Pub/Sub channel name for broadcast events.
// Pattern: deck:{instance_name}:document_events
func DocumentEventsChannel(instanceName string) string {
	return fmt.Sprintf("deck:%s:document_events", instanceName)
}
