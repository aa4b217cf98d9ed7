package notifications

import "hrbenefits/internal/domain/benefits"

var titles = map[string]string{
	benefits.EventCalculated: "Benefits calculated",
	benefits.EventApproved:   "Benefits approved",
	benefits.EventSubmitted:  "Benefits submitted for disbursement",
	benefits.EventPaid:       "Benefits paid",
	benefits.EventCancelled:  "Benefits cancelled",
	benefits.EventFailed:     "Benefits disbursement failed",
}

// emailed lists the events HR recipients receive by mail. The rest are only stored.
var emailed = map[string]bool{
	benefits.EventSubmitted: true,
	benefits.EventPaid:      true,
	benefits.EventFailed:    true,
}
