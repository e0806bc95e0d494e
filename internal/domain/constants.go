package domain

// Job status constants
const (
	JobStatusQueued    = "QUEUED"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
	JobStatusTimedOut  = "TIMED_OUT"
)

// Event kinds pushed to clients
const (
	EventStatus = "status"
	EventData   = "data"
	EventError  = "error"
)

// Completion signal statuses reported by the scraping worker
const (
	CompletionDone   = "done"
	CompletionFailed = "failed"
)

// DefaultPage is the pagination depth used when a search does not specify one
const DefaultPage = 8

// DefaultMarketplaces is the marketplace set searched when a request names none
var DefaultMarketplaces = []string{
	"Ozon",
	"Wildberries",
	"YandexMarket",
	"MagnitMarket",
	"DNS",
	"Citilink",
	"M_Video",
	"Aliexpress",
	"Joom",
	"Shop_mts",
	"Technopark",
	"Lamoda",
}
