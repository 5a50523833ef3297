package models

const AlertTitle = "ClaimSync Alert"

const (
	AlertDesc_ExpiredActions = "Expired Actions"
	AlertDesc_ReplayStalled  = "Replay Stalled"
)

const (
	AlertFmt_ExpiredActions string = "%d action(s) older than %s dropped for viewer %s"
	AlertFmt_ReplayStalled  string = "%d action(s) still queued for viewer %s:\n%s"
)
