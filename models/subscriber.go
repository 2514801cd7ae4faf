package models

// Subscriber mirrors a document in the subscribers collection. Records are
// only ever written at verification time, so a persisted subscriber is by
// definition a verified one.
type Subscriber struct {
	Email    string `json:"email" bson:"email"`
	Verified bool   `json:"verified" bson:"verified"`
}

// SuppressedEmail stores an address from which we've received a bounce or
// complaint notification. We never send verification mail to these.
type SuppressedEmail struct {
	Email     string `json:"email" bson:"email"`
	Reason    string `json:"reason" bson:"reason"`       // eg. "bounce" or "complaint"
	Timestamp string `json:"timestamp" bson:"timestamp"` // when the bounce or complaint occurred
}
