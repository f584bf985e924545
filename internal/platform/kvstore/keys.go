package kvstore

import (
	"fmt"

	"github.com/taskhive/taskhive/internal/domain"
)

// Key layout. Log sequence numbers are zero-padded to 20 digits so a prefix
// scan returns entries in append order. Index keys carry no value beyond
// presence.
const (
	taskKeyPrefix     = "task:task:"
	typeKeyPrefix     = "task:type:"
	logKeyPrefix      = "task:log:"
	stateIdxKeyPrefix = "task:idx:state:"
	typeIdxKeyPrefix  = "task:idx:type:"
	schedKeyPrefix    = "task:sched:"
)

func taskKey(id string) string {
	return taskKeyPrefix + id
}

func typeKey(id string) string {
	return typeKeyPrefix + id
}

func logKey(id string, seq int64) string {
	return fmt.Sprintf("%s%s:%020d", logKeyPrefix, id, seq)
}

func taskLogPrefix(id string) string {
	return logKeyPrefix + id + ":"
}

func stateIdxKey(state domain.TaskState, id string) string {
	return stateIdxKeyPrefix + string(state) + ":" + id
}

func stateIdxPrefix(state domain.TaskState) string {
	return stateIdxKeyPrefix + string(state) + ":"
}

func typeIdxKey(typeID, id string) string {
	return typeIdxKeyPrefix + typeID + ":" + id
}

func typeIdxPrefix(typeID string) string {
	return typeIdxKeyPrefix + typeID + ":"
}

func schedKey(id string) string {
	return schedKeyPrefix + id
}
