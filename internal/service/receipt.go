package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"restopos-backend/internal/apperr"
	"restopos-backend/internal/mail"
)

// ReceiptRequest is the payload of sendReceiptEmail.
type ReceiptRequest struct {
	Email           string         `json:"email" validate:"required,email"`
	OrderID         string         `json:"orderId"`
	OrderIdentifier string         `json:"orderIdentifier"`
	Total           float64        `json:"total" validate:"gte=0"`
	ReceiptURL      string         `json:"receiptUrl" validate:"omitempty,url"`
	Store           map[string]any `json:"store"`
	Customer        map[string]any `json:"customer"`
	PDFBase64       string         `json:"pdfBase64" validate:"omitempty,base64"`
	// FileName overrides the attachment name.
	FileName string `json:"fileName" validate:"omitempty,max=120"`
}

var receiptTemplate = template.Must(template.New("receipt").Parse(`
<p>เรียนคุณ {{.CustomerName}},</p>
<p>ขอบคุณที่ใช้บริการ {{.StoreName}}</p>
<p>ข้อมูลคำสั่งซื้อ: <strong>{{.OrderIdentifier}}</strong></p>
<p>ยอดชำระรวม: <strong>{{.Total}} บาท</strong></p>
{{- if .ReceiptURL}}
<p>คุณสามารถดาวน์โหลดใบเสร็จ/ใบกำกับภาษีได้จากลิงก์ด้านล่าง:</p>
<p><a href="{{.ReceiptURL}}" target="_blank" rel="noopener">เปิดใบเสร็จ</a></p>
{{- end}}
<p>ขอบคุณและหวังว่าจะได้ให้บริการอีกครั้ง</p>
`))

type receiptView struct {
	CustomerName    string
	StoreName       string
	OrderIdentifier string
	Total           string
	ReceiptURL      string
}

// ReceiptService emails order receipts.
type ReceiptService struct {
	Mailer   mail.Sender
	Validate *validator.Validate
	Logger   *slog.Logger
}

func (s ReceiptService) validator() *validator.Validate {
	if s.Validate != nil {
		return s.Validate
	}
	return validator.New()
}

// ReceiptIdentifier picks the label used in the subject and attachment name.
func ReceiptIdentifier(req ReceiptRequest) string {
	switch {
	case req.OrderIdentifier != "":
		return req.OrderIdentifier
	case req.OrderID != "":
		return req.OrderID
	default:
		return "Order"
	}
}

// BuildReceipt renders the message without sending it.
func (s ReceiptService) BuildReceipt(req ReceiptRequest) (mail.Message, error) {
	if err := s.validator().Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Field() == "Email" {
					return mail.Message{}, apperr.New(apperr.InvalidArgument, "Recipient email is required.")
				}
			}
			return mail.Message{}, apperr.New(apperr.InvalidArgument, "Invalid receipt payload: %s", verrs[0].Field())
		}
		return mail.Message{}, apperr.Wrap(apperr.InvalidArgument, err, "Invalid receipt payload.")
	}

	identifier := ReceiptIdentifier(req)
	view := receiptView{
		CustomerName:    stringOr(req.Customer["customerName"], "ลูกค้า"),
		StoreName:       stringOr(req.Store["name"], "ร้านค้า"),
		OrderIdentifier: identifier,
		Total:           fmt.Sprintf("%.2f", req.Total),
		ReceiptURL:      req.ReceiptURL,
	}
	var body bytes.Buffer
	if err := receiptTemplate.Execute(&body, view); err != nil {
		return mail.Message{}, apperr.Wrap(apperr.Internal, err, "Failed to render receipt.")
	}

	msg := mail.Message{
		To:       strings.TrimSpace(req.Email),
		FromName: view.StoreName,
		Subject:  "Receipt for " + identifier,
		HTML:     body.String(),
	}
	if req.PDFBase64 != "" {
		pdf, err := base64.StdEncoding.DecodeString(req.PDFBase64)
		if err != nil {
			return mail.Message{}, apperr.New(apperr.InvalidArgument, "pdfBase64 is not valid base64.")
		}
		filename := identifier + ".pdf"
		if name := strings.TrimSpace(req.FileName); name != "" {
			filename = name
		}
		msg.Attachments = []mail.Attachment{{
			Filename:    filename,
			ContentType: "application/pdf",
			Content:     pdf,
		}}
	}
	return msg, nil
}

// Send renders and delivers the receipt.
func (s ReceiptService) Send(ctx context.Context, req ReceiptRequest) error {
	msg, err := s.BuildReceipt(req)
	if err != nil {
		return err
	}
	if s.Mailer == nil {
		return apperr.New(apperr.FailedPrecondition, "Email delivery is not configured.")
	}
	if err := s.Mailer.Send(ctx, msg); err != nil {
		if errors.Is(err, mail.ErrNotConfigured) {
			return apperr.Wrap(apperr.FailedPrecondition, err, "Email delivery is not configured.")
		}
		return apperr.Wrap(apperr.Internal, err, "Failed to send receipt email.")
	}
	s.Logger.Info("receipt email sent", "email", msg.To, "order", ReceiptIdentifier(req))
	return nil
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
