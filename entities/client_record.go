package entities

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ClientRecordStatus string

const (
	ClientRecordComplete ClientRecordStatus = "complete"
	// ClientRecordIncomplete is stored when an approved session ends before
	// the applicant finished the form; the seats stay consumed.
	ClientRecordIncomplete ClientRecordStatus = "incomplete"
)

type ClientRecord struct {
	RecordID      uuid.UUID          `json:"record_id" db:"record_id"`
	ShowID        int                `json:"show_id" db:"show_id"`
	ShowName      string             `json:"show_name" db:"show_name"`
	ShowDate      string             `json:"show_date" db:"show_date"`
	ShowTime      string             `json:"show_time" db:"show_time"`
	OptionID      int                `json:"option_id" db:"option_id"`
	OptionName    string             `json:"option_name" db:"option_name"`
	Price         int                `json:"price" db:"price"`
	Seats         Seats              `json:"seats" db:"seats"`
	ApplicantName string             `json:"applicant_name" db:"applicant_name"`
	Phone         string             `json:"phone" db:"phone"`
	ChildrenNames []string           `json:"children_names" db:"-"`
	PaymentProof  string             `json:"payment_proof" db:"payment_proof"`
	UserID        int64              `json:"user_id" db:"user_id"`
	ChatID        int64              `json:"chat_id" db:"chat_id"`
	Status        ClientRecordStatus `json:"status" db:"status"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
}

// SheetRow is the column layout of the organizers' clients sheet.
func (r ClientRecord) SheetRow() []string {
	return []string{
		r.RecordID.String(),
		string(r.Status),
		r.ShowName,
		r.ShowDate,
		r.ShowTime,
		r.OptionName,
		strconv.Itoa(r.Price),
		strconv.Itoa(r.Seats.Adult),
		strconv.Itoa(r.Seats.Children),
		r.ApplicantName,
		r.Phone,
		strings.Join(r.ChildrenNames, ", "),
		r.PaymentProof,
		strconv.FormatInt(r.UserID, 10),
	}
}
