// Package dedup collapses concurrent identical operations into a single execution.
package dedup

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"golang.org/x/sync/singleflight"
)

// Observer is notified after every call with the operation prefix of the key
// and whether the caller joined an execution started by someone else.
type Observer func(op string, shared bool)

// Deduplicator shares one in-flight execution per key among concurrent callers.
// The entry for a key is removed as soon as its execution settles, so later
// calls with the same key run the factory again.
type Deduplicator struct {
	group    singleflight.Group
	observer Observer
}

// New creates an empty deduplicator.
func New(observer Observer) *Deduplicator {
	return &Deduplicator{observer: observer}
}

// PanicError is returned to every caller when the factory panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("dedup: factory panicked: %v", e.Value)
}

// Do runs factory once for all concurrent callers of key and returns its result.
// The factory receives a context detached from the first caller's cancellation.
// A caller whose ctx is done stops waiting and gets ctx.Err(); the shared
// execution keeps running for the remaining callers.
func Do[T any](ctx context.Context, d *Deduplicator, key string, factory func(ctx context.Context) (T, error)) (T, bool, error) {
	var zero T

	ch := d.group.DoChan(key, func() (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		return factory(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if d.observer != nil {
			d.observer(opOf(key), res.Shared)
		}
		if res.Err != nil {
			return zero, res.Shared, res.Err
		}
		value, _ := res.Val.(T)
		return value, res.Shared, nil
	}
}

// Forget drops key so the next call starts a fresh execution.
func (d *Deduplicator) Forget(key string) {
	d.group.Forget(key)
}

func opOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}
