package users

import "fmt"

// Queue names shared with the course-catalog and purchase services.
const (
	// UserDetailsQueue receives user-detail requests answered via the
	// request's reply-to destination.
	UserDetailsQueue = "user_details_queue"

	// UserInfoQueue is the legacy user-info request queue; replies go to a
	// per-user response queue instead of a reply-to destination.
	UserInfoQueue = "user_info_queue"

	// PurchaseQueue is the durable queue purchase confirmations arrive on.
	PurchaseQueue = "purchase_to_user_queue"

	// CourseQueue is the course-catalog service's request queue.
	CourseQueue = "course_queue"
)

// userInfoReplyQueue names the fixed reply queue of the legacy user-info
// protocol.
func userInfoReplyQueue(userID int64) string {
	return fmt.Sprintf("response_user_info_%d", userID)
}

// userDetailsRequest is the body of user_details_queue and user_info_queue
// requests.
type userDetailsRequest struct {
	UserID int64 `json:"userId"`
}

// userDetailsReply answers user_details_queue requests.
type userDetailsReply struct {
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	CourseIDs []int64 `json:"courseIds"`
}

// userInfoReply answers legacy user_info_queue requests.
type userInfoReply struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// courseDetailsRequest is the body sent to course_queue.
type courseDetailsRequest struct {
	CourseIDs []int64 `json:"courseIds"`
}

// PurchaseEvent is a purchase confirmation. Only its effects are persisted.
type PurchaseEvent struct {
	UserID    int64   `json:"userId"`
	CourseIDs []int64 `json:"courseIds"`
}
