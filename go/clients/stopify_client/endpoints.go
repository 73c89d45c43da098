package stopify_client

const (
	// Base URL
	DefaultBaseURL = "http://localhost:3001"

	// API Endpoints
	RoomEndpoint          = "/room"
	RoomJoinEndpoint      = "/room/%s/join"
	RoomLeaveEndpoint     = "/room/%s/leave"
	RoomStartEndpoint     = "/room/%s/start"
	RoomDetailEndpoint    = "/room/%s"
	SubmitAnswersEndpoint = "/room/answers"
)
