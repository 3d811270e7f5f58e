// Package remote defines the port to the cloud document store that mirrors
// the local ledger, and the failure classification every adapter reports.
package remote

import (
	"context"

	"ledger/internal/model"
)

// Store is the outbound port to a remote document store. Adapters never
// retry; they classify failures as transient or permanent and return.
type Store interface {
	// Create writes doc under col with the given document id and returns the
	// id the remote assigned. Creating an id that already exists overwrites
	// it and succeeds, which makes retried creates idempotent.
	Create(ctx context.Context, col CollectionRef, docID string, doc Document) (remoteID string, err error)
	// Replace overwrites the document at ref, creating it if absent.
	Replace(ctx context.Context, ref DocumentRef, doc Document) error
	// Delete removes the document at ref. A missing document is not an error.
	Delete(ctx context.Context, ref DocumentRef) error
}

// Document is a flat field map. Values are string, bool, int64, float64,
// time.Time or nil.
type Document map[string]any

// Collection names under users/{ownerId}.
const (
	ExpensesCollection = "expenses"
	ProfileCollection  = "profile"
	ProfileDocumentID  = "info"
)

type CollectionRef struct {
	OwnerID string
	Name    string
}

type DocumentRef struct {
	Collection CollectionRef
	ID         string
}

// Expenses is users/{ownerID}/expenses.
func Expenses(ownerID string) CollectionRef {
	return CollectionRef{OwnerID: ownerID, Name: ExpensesCollection}
}

// ProfileRef is users/{ownerID}/profile/info.
func ProfileRef(ownerID string) DocumentRef {
	return CollectionRef{OwnerID: ownerID, Name: ProfileCollection}.Doc(ProfileDocumentID)
}

func (c CollectionRef) Path() string {
	return "users/" + c.OwnerID + "/" + c.Name
}

func (c CollectionRef) Doc(id string) DocumentRef {
	return DocumentRef{Collection: c, ID: id}
}

func (d DocumentRef) Path() string {
	return d.Collection.Path() + "/" + d.ID
}

// TransactionDocument is the remote representation of a ledger entry.
func TransactionDocument(t model.Transaction) Document {
	amount, _ := t.Amount.Float64()
	doc := Document{
		"amount":    amount,
		"category":  t.Category,
		"date":      t.OccurredAt.UTC(),
		"type":      string(t.Kind),
		"userId":    t.OwnerID,
		"localId":   t.ID,
		"syncKey":   t.SyncKey,
		"createdAt": t.CreatedAt.UTC(),
		"updatedAt": t.UpdatedAt.UTC(),
	}
	if t.Notes != "" {
		doc["notes"] = t.Notes
	} else {
		doc["notes"] = nil
	}
	return doc
}

// ProfileDocument is the remote representation of a user profile.
func ProfileDocument(p model.Profile) Document {
	budget, _ := p.MonthlyBudget.Float64()
	doc := Document{
		"userId":        p.OwnerID,
		"displayName":   p.DisplayName,
		"monthlyBudget": budget,
		"currency":      p.CurrencyCode,
		"isGuest":       p.IsGuest,
		"createdAt":     p.CreatedAt.UTC(),
		"updatedAt":     p.UpdatedAt.UTC(),
	}
	if p.Email != "" {
		doc["email"] = p.Email
	}
	if p.PhotoRef != "" {
		doc["photoUrl"] = p.PhotoRef
	}
	return doc
}

// Clone returns a shallow copy; values are immutable scalars.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
