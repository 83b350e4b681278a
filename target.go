package main

import "context"

// defaultCount is how many messages a run reads when neither --count nor
// --all is given.
const defaultCount = 1

// TargetOptions describes how the operator asked the collection target to be
// computed.
type TargetOptions struct {
	All      bool // read everything currently on the queue
	Count    int  // value of --count
	CountSet bool // --count was given explicitly
	Block    bool // the loop may wait for future arrivals
}

// ResolveTarget computes the number of distinct messages the collector must
// observe before it stops polling. The queue's approximate size is only
// consulted in modes that need it, so a failing attribute query cannot abort
// an explicit --count run.
func ResolveTarget(ctx context.Context, queue *QueueClient, queueURL string, opts TargetOptions) (int, error) {
	if opts.CountSet {
		return opts.Count, nil
	}

	if opts.All {
		return queue.ApproximateSize(ctx, queueURL)
	}

	if opts.Block {
		return defaultCount, nil
	}

	// Without --block the loop cannot outlast the current backlog, so cap
	// the default at whatever the queue reports right now.
	size, err := queue.ApproximateSize(ctx, queueURL)
	if err != nil {
		return 0, err
	}
	if size < defaultCount {
		return size, nil
	}
	return defaultCount, nil
}
