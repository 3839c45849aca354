package gateway

// Stage is the furthest point a request reached in the pipeline.
type Stage int

const (
	StageReceived Stage = iota
	StageKeyValidated
	StageEndpointResolved
	StageTierAuthorized
	StageRateLimitChecked
	StageDispatched
	StageCompleted
)

var stageNames = [...]string{
	StageReceived:         "received",
	StageKeyValidated:     "key_validated",
	StageEndpointResolved: "endpoint_resolved",
	StageTierAuthorized:   "tier_authorized",
	StageRateLimitChecked: "rate_limit_checked",
	StageDispatched:       "dispatched",
	StageCompleted:        "completed",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}
