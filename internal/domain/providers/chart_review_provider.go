package providers

import "context"

// ReviewDomain names one evaluation domain and its criteria for a chart review.
type ReviewDomain struct {
	Name               string `json:"name"`
	EvaluationCriteria string `json:"evaluationCriteria"`
}

// DomainReview is the narrative result for one evaluated domain.
type DomainReview struct {
	Name   string `json:"name"`
	Review string `json:"review"`
}

// ChartReviewProvider evaluates a chart payload against a set of domains.
type ChartReviewProvider interface {
	Review(ctx context.Context, chart map[string]interface{}, domains []ReviewDomain) ([]DomainReview, error)
}
