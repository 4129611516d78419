// Package reembed recomputes the embeddings of rows already stored in a table.
//
// Reembedding is needed after switching embedding models or changing a
// route's text fields. Rows are read in natural store order, embedded in
// batches from the route's text fields, and written back in place. Embedding
// calls are retried with exponential backoff and progress is reported to a
// writer.
package reembed
