// Package payment adapts the Midtrans gateway to the payment service.
package payment

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

// MidtransGateway creates Snap transactions and queries or refunds them through the Core API.
type MidtransGateway struct {
	serverKey string
	snap      snap.Client
	core      coreapi.Client
}

var _ app.PaymentGateway = (*MidtransGateway)(nil)

func NewMidtransGateway(serverKey string, production bool) *MidtransGateway {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	g := &MidtransGateway{serverKey: serverKey}
	g.snap.New(serverKey, env)
	g.core.New(serverKey, env)
	return g
}

func (g *MidtransGateway) CreateCharge(_ context.Context, p domain.Payment, customer domain.User) (domain.Charge, error) {
	gross := p.Total.Round(0).IntPart()
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  p.OrderID,
			GrossAmt: gross,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: customer.FirstName,
			LName: customer.LastName,
			Email: customer.Email,
		},
		Items: &[]midtrans.ItemDetails{{
			ID:       itemID(p),
			Name:     truncate(p.Description, 50),
			Price:    gross,
			Qty:      1,
			Category: string(p.Type),
		}},
		CreditCard: &snap.CreditCardDetails{Secure: true},
	}

	resp, merr := g.snap.CreateTransaction(req)
	if merr != nil {
		return domain.Charge{}, fmt.Errorf("snap create transaction: %v", merr)
	}
	return domain.Charge{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

func (g *MidtransGateway) Status(_ context.Context, orderID string) (domain.GatewayStatus, error) {
	resp, merr := g.core.CheckTransaction(orderID)
	if merr != nil {
		return domain.GatewayStatus{}, fmt.Errorf("check transaction: %v", merr)
	}
	return domain.GatewayStatus{
		TransactionStatus: resp.TransactionStatus,
		FraudStatus:       resp.FraudStatus,
		TransactionID:     resp.TransactionID,
	}, nil
}

func (g *MidtransGateway) Refund(_ context.Context, p domain.Payment, reason string) error {
	req := &coreapi.RefundReq{
		RefundKey: p.OrderID + "-refund",
		Amount:    p.Total.Round(0).IntPart(),
		Reason:    reason,
	}
	if _, merr := g.core.RefundTransaction(p.OrderID, req); merr != nil {
		return fmt.Errorf("refund transaction: %v", merr)
	}
	return nil
}

// VerifySignature checks signature_key = sha512(order_id + status_code + gross_amount + server_key).
func (g *MidtransGateway) VerifySignature(n domain.GatewayNotification) bool {
	return VerifySignature(g.serverKey, n)
}

func VerifySignature(serverKey string, n domain.GatewayNotification) bool {
	if n.SignatureKey == "" {
		return false
	}
	want := Signature(serverKey, n.OrderID, n.StatusCode, n.GrossAmount)
	got := strings.ToLower(n.SignatureKey)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// Signature computes the notification signature the gateway sends.
func Signature(serverKey, orderID, statusCode, grossAmount string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func itemID(p domain.Payment) string {
	if p.CourseID != nil {
		return fmt.Sprintf("course-%d", *p.CourseID)
	}
	return string(p.Type)
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
