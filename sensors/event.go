package sensors

type EventKind string

const (
	EventPosition  EventKind = "position"
	EventSteps     EventKind = "steps"
	EventPostcode  EventKind = "postcode"
	EventWeather   EventKind = "weather"
	EventPollution EventKind = "pollution"
	EventPollen    EventKind = "pollen"
)

// Event carries one normalized value to the outside world.
type Event struct {
	Session string      `json:"session"`
	Kind    EventKind   `json:"kind"`
	Data    interface{} `json:"data"`
}
