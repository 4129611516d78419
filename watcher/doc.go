// Package watcher feeds an audit-data folder into an ingestor.
//
// A Watcher first subscribes to file creation events, then scans the files
// already present in the folder, then handles creation events one at a time
// until its context is cancelled. Every file goes through the same
// Processor, so a file seen both by the scan and by an event is ingested
// once and the second attempt is reported as already processed.
//
// Example:
//
//	w, err := watcher.NewWatcher("./audit_data", ingestor,
//	    watcher.WithSettle(250*time.Millisecond, 10*time.Second))
//	if err != nil {
//	    return err
//	}
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	return w.Run(ctx)
package watcher
