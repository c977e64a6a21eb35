// game/errors.go
package game

import "errors"

// 错误定义
var (
	// ErrBadRequest: the action is invalid for the current stage, the
	// bet is below the minimum or above the balance, or the actor is
	// not seated in the room. No mutation was performed.
	ErrBadRequest = errors.New("bad request")
	// ErrNotFound: room, player or hand missing.
	ErrNotFound = errors.New("not found")
	// ErrConflict: the optimistic version guard lost the race after
	// exhausting its internal retries. The caller may retry the whole
	// action.
	ErrConflict = errors.New("version conflict")
	// ErrInternal: deck provider failure or a mutation against a row
	// that vanished mid-transition.
	ErrInternal = errors.New("internal error")
)
