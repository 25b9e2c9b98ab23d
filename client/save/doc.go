// Package save writes completed responses to disk.
//
// [File] streams data into a temporary file next to the destination and
// renames it into place only once everything has been written, so a
// reader never observes a partial file:
//
//	err := save.File(ctx, "body.txt", bytes.NewReader(resp.Body), int64(len(resp.Body)), logger,
//		save.WithChecksum(sha256.New(), expected),
//	)
//
// A [Batch] writes several files concurrently and reports every failure:
//
//	b := save.NewBatch(2)
//	b.Go(ctx, func(ctx context.Context) error { return save.File(ctx, "headers.txt", h, -1, logger) })
//	b.Go(ctx, func(ctx context.Context) error { return save.File(ctx, "body.txt", body, -1, logger) })
//	err := b.Wait()
package save
