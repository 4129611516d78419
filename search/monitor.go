package search

import "github.com/poiesic/auditrag/core"

// RetrievalMonitor provides hooks to observe the retrieval process.
// Table hooks are called after all searches finished, in table order.
type RetrievalMonitor interface {
	Start(query string)
	AfterQueryEmbedding(vector []float32)
	TableSearched(table string, hits []*core.SimilarityResult)
	TableFailed(table string, err error)
	Finish(report *Report)
}

// noopMonitor is a no-op implementation of RetrievalMonitor
type noopMonitor struct{}

var _ RetrievalMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                                     {}
func (n *noopMonitor) AfterQueryEmbedding(_ []float32)                    {}
func (n *noopMonitor) TableSearched(_ string, _ []*core.SimilarityResult) {}
func (n *noopMonitor) TableFailed(_ string, _ error)                      {}
func (n *noopMonitor) Finish(_ *Report)                                   {}
