package contracts

import "time"

// DumpEventCluster anchors an event study: a maximal run of observations at
// or above the high threshold followed by a drop below it. One cluster per
// qualifying transition; clusters are immutable once created.
type DumpEventCluster struct {
	ClusterID  string    `json:"cluster_id"`
	SellerCIK  string    `json:"seller_cik"`
	CUSIP      string    `json:"cusip"`
	AnchorDate time.Time `json:"anchor_date"`
	Delta      float64   `json:"delta"`    // post - mean(pre-period)
	PreLength  int       `json:"pre_len"`  // qualifying run length
	PreMean    float64   `json:"pre_mean"` // average level over the run
}

// EventStudy holds pre/post statistics around a cluster's anchor date.
// Insufficient reports that a window had zero present observations; the
// corresponding average is undefined and must not be read.
type EventStudy struct {
	ClusterID string  `json:"cluster_id"`
	PreAvg    float64 `json:"pre_avg"`
	PostAvg   float64 `json:"post_avg"`
	PreCount  int     `json:"pre_count"`
	PostCount int     `json:"post_count"`

	Insufficient bool `json:"insufficient"`
}
