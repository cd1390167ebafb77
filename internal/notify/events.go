package notify

import "github.com/flexa/stylebot/internal/models"

// Audience selects which configured chat receives an event.
type Audience string

const (
	AudienceUser         Audience = "user"
	AudienceManualGroup  Audience = "manual_group"
	AudiencePaymentGroup Audience = "payment_group"
	AudienceNewUserGroup Audience = "newuser_group"
)

// Event is a notification produced by a workflow after its transaction
// committed. Delivery is fire-and-forget: a lost event never invalidates the
// transition that produced it.
type Event interface {
	Audience() Audience
}

type UserJoined struct {
	User models.User
}

func (UserJoined) Audience() Audience { return AudienceNewUserGroup }

type PaymentSubmitted struct {
	Payment models.Payment
	User    models.User
}

func (PaymentSubmitted) Audience() Audience { return AudiencePaymentGroup }

type PaymentApproved struct {
	UserID     int64
	Language   models.Language
	Credits    int
	NewBalance int
}

func (PaymentApproved) Audience() Audience { return AudienceUser }

type PaymentRejected struct {
	UserID   int64
	Language models.Language
	Reason   string
}

func (PaymentRejected) Audience() Audience { return AudienceUser }

type GenerationQueuedManual struct {
	Generation models.Generation
	User       models.User
	StyleName  string
	Prompt     string
	QueueTotal int
}

func (GenerationQueuedManual) Audience() Audience { return AudienceManualGroup }

type GenerationCompleted struct {
	UserID    int64
	Language  models.Language
	ResultURL string
}

func (GenerationCompleted) Audience() Audience { return AudienceUser }

type GenerationCancelled struct {
	UserID     int64
	Language   models.Language
	Reason     string
	Refunded   int
	NewBalance int
}

func (GenerationCancelled) Audience() Audience { return AudienceUser }
