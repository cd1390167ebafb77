package models

import "time"

type Language string

const (
	LanguageEN Language = "en"
	LanguageAM Language = "am"
)

// GenerationStatus is the closed set of states a generation moves through.
// pending and processing are live states, manual_queue waits for a human,
// completed and failed are terminal.
type GenerationStatus string

const (
	GenerationPending     GenerationStatus = "pending"
	GenerationProcessing  GenerationStatus = "processing"
	GenerationCompleted   GenerationStatus = "completed"
	GenerationFailed      GenerationStatus = "failed"
	GenerationManualQueue GenerationStatus = "manual_queue"
)

// generationTransitions lists the legal source states for each target state.
var generationTransitions = map[GenerationStatus][]GenerationStatus{
	GenerationProcessing:  {GenerationPending},
	GenerationCompleted:   {GenerationPending, GenerationProcessing, GenerationManualQueue},
	GenerationFailed:      {GenerationPending, GenerationProcessing, GenerationManualQueue},
	GenerationManualQueue: {GenerationPending, GenerationProcessing},
}

// CanTransition reports whether a generation may move from one status to another.
func (s GenerationStatus) CanTransition(to GenerationStatus) bool {
	for _, from := range generationTransitions[to] {
		if from == s {
			return true
		}
	}
	return false
}

// IsActive reports whether the status still occupies the user's single
// generation slot.
func (s GenerationStatus) IsActive() bool {
	return s == GenerationPending || s == GenerationProcessing || s == GenerationManualQueue
}

func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationCompleted || s == GenerationFailed
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	return s == PaymentPending && (to == PaymentApproved || to == PaymentRejected)
}

// TransactionKind classifies ledger entries.
type TransactionKind string

const (
	TransactionBonus           TransactionKind = "bonus"
	TransactionPurchase        TransactionKind = "purchase"
	TransactionGeneration      TransactionKind = "generation"
	TransactionAdminAdjustment TransactionKind = "admin_adjustment"
)

func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionBonus, TransactionPurchase, TransactionGeneration, TransactionAdminAdjustment:
		return true
	}
	return false
}

// ProviderManual marks generations completed by an admin instead of an AI provider.
const ProviderManual = "manual"

type User struct {
	ID               int64
	Username         string
	FirstName        string
	Language         Language
	CreditBalance    int
	TotalGenerations int
	IsActive         bool
	IsBanned         bool
	JoinedAt         time.Time
	LastActive       time.Time
}

type Style struct {
	ID              string
	NameEN          string
	NameAM          string
	DescriptionEN   string
	DescriptionAM   string
	PromptTemplate  string
	CreditCost      int
	IsActive        bool
	DisplayOrder    int
	PreviewImageURL string
	CreatedAt       time.Time
}

type Generation struct {
	ID                string
	UserID            int64
	StyleID           string
	Status            GenerationStatus
	OriginalPhotoURL  string
	GeneratedPhotoURL string
	CreditsSpent      int
	ErrorMessage      string
	APIProvider       string
	ProcessingTimeMS  int64
	CreatedAt         time.Time
	CompletedAt       *time.Time
}

// ManualTask is a manual-queue row joined with the user and style the admin
// needs to process it.
type ManualTask struct {
	Generation
	UserFirstName  string
	UserUsername   string
	UserLanguage   Language
	StyleName      string
	PromptTemplate string
}

// OCRData is the advisory hint extracted from a payment screenshot. It is
// stored verbatim and never drives approval decisions.
type OCRData struct {
	Amount        string `json:"amount,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Sender        string `json:"sender,omitempty"`
	RawText       string `json:"raw_text,omitempty"`
}

type Payment struct {
	ID            string
	UserID        int64
	PackageType   string
	AmountBirr    int
	CreditsAmount int
	ScreenshotURL string
	OCRData       *OCRData
	Status        PaymentStatus
	AdminID       *int64
	AdminNote     string
	SubmittedAt   time.Time
	ReviewedAt    *time.Time
}

// PendingPayment is a pending row joined with the submitting user.
type PendingPayment struct {
	Payment
	UserFirstName string
	UserUsername  string
	UserLanguage  Language
}

// CreditTransaction is one append-only ledger entry. Amount is signed;
// BalanceAfter is the user's balance immediately after the entry was applied.
type CreditTransaction struct {
	ID           string
	UserID       int64
	Amount       int
	Kind         TransactionKind
	ReferenceID  string
	BalanceAfter int
	Note         string
	CreatedAt    time.Time
}

// Package is a purchasable credit bundle. Prices and credit counts live in
// server config and are never taken from client input.
type Package struct {
	Type      string
	Credits   int
	PriceBirr int
	NameEN    string
	NameAM    string
}

type Stats struct {
	TotalUsers       int
	TotalGenerations int
	PendingPayments  int
	ManualQueue      int
}
