package convert

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/tld-registry/internal/model"
	"github.com/and161185/tld-registry/internal/repository"
	"github.com/and161185/tld-registry/internal/service"
)

// M is an untyped response object accepted by structpb.NewStruct.
type M = map[string]any

// Struct builds a response message.
func Struct(m M) (*structpb.Struct, error) {
	return structpb.NewStruct(m)
}

func ts(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func list[T any](in []T, f func(T) any) []any {
	out := make([]any, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}

func str[T ~string](v T) any { return string(v) }

func money(m model.Money) M {
	return M{"currency": m.Currency, "amount": m.Amount.String()}
}

// Domain renders a domain. Auth info is never included.
func Domain(d model.Domain) M {
	return M{
		"repo_id":    d.RepoID,
		"name":       d.Name,
		"tld":        d.TLD,
		"statuses":   list(d.Statuses, str[model.StatusValue]),
		"registrant": d.RegistrantID,
		"contacts": list(d.Contacts, func(c model.ContactRef) any {
			return M{"type": c.Type, "contact_id": c.ContactID}
		}),
		"nameservers": list(d.Nameservers, str[string]),
		"sponsor":     d.SponsorID,
		"creator":     d.CreatorID,
		"grace_periods": list(d.GracePeriods, func(g model.GracePeriod) any {
			return M{"type": string(g.Type), "registrar": g.RegistrarID, "expiration_time": ts(g.ExpirationTime)}
		}),
		"transfer":           Transfer(d.Transfer),
		"creation_time":      ts(d.CreationTime),
		"last_update_time":   ts(d.LastUpdateTime),
		"last_transfer_time": ts(d.LastTransferTime),
		"expiration_time":    ts(d.ExpirationTime),
		"deletion_time":      ts(d.DeletionTime),
		"autorenew_end_time": ts(d.AutorenewEndTime),
	}
}

// Transfer renders transfer data without the speculative bundle keys.
func Transfer(t model.TransferData) M {
	return M{
		"status":                      string(t.Status),
		"gaining_registrar":           t.GainingRegistrarID,
		"losing_registrar":            t.LosingRegistrarID,
		"request_time":                ts(t.RequestTime),
		"pending_expiration_time":     ts(t.PendingExpirationTime),
		"transferred_expiration_time": ts(t.TransferredExpirationTime),
		"period":                      t.PeriodYears,
	}
}

// Fees renders a fee set with its total.
func Fees(f model.Fees) M {
	return M{
		"currency": f.Currency,
		"total":    f.Total().Amount.String(),
		"items": list(f.Items, func(it model.Fee) any {
			return M{"type": string(it.Type), "amount": it.Amount.String(), "premium": it.Premium}
		}),
	}
}

// Poll renders a poll result.
func Poll(r service.PollResult) M {
	out := M{"count": r.Count}
	if r.Message == nil {
		return out
	}
	p := *r.Message
	msg := M{
		"id":         p.ID.String(),
		"kind":       string(p.Kind),
		"domain":     p.TargetID,
		"event_time": ts(p.EventTime),
		"message":    p.Message,
	}
	if p.Response != nil {
		msg["transfer"] = M{
			"domain":                      p.Response.DomainName,
			"status":                      string(p.Response.Status),
			"gaining_registrar":           p.Response.GainingRegistrarID,
			"losing_registrar":            p.Response.LosingRegistrarID,
			"request_time":                ts(p.Response.RequestTime),
			"pending_expiration_time":     ts(p.Response.PendingExpirationTime),
			"transferred_expiration_time": ts(p.Response.TransferredExpirationTime),
		}
	}
	out["message"] = msg
	return out
}

// Records renders a domain's history and billing ledger.
func Records(r service.DomainRecords) M {
	return M{
		"history": list(r.History, func(h model.HistoryEntry) any {
			return M{
				"id":                     h.ID.String(),
				"type":                   string(h.Type),
				"modification_time":      ts(h.ModificationTime),
				"registrar":              h.RegistrarID,
				"period":                 h.PeriodYears,
				"reason":                 h.Reason,
				"requested_by_registrar": h.RequestedByRegistrar,
				"transaction_records": list(h.TransactionRecords, func(tr model.TransactionRecord) any {
					return M{"tld": tr.TLD, "field": string(tr.Field), "amount": tr.Amount,
						"reporting_time": ts(tr.ReportingTime)}
				}),
			}
		}),
		"ledger": Ledger(r.Ledger),
	}
}

// Ledger renders billing events.
func Ledger(l repository.Ledger) M {
	return M{
		"one_time": list(l.OneTimes, func(e model.OneTime) any {
			return M{
				"id":           e.ID.String(),
				"reason":       string(e.Reason),
				"registrar":    e.RegistrarID,
				"cost":         money(e.Cost),
				"period":       e.PeriodYears,
				"event_time":   ts(e.EventTime),
				"billing_time": ts(e.BillingTime),
				"token":        e.AllocationToken,
			}
		}),
		"recurring": list(l.Recurrings, func(e model.Recurring) any {
			rp := M{"behavior": string(e.Behavior())}
			if p := model.SpecifiedPrice(e.RenewalPrice); p != nil {
				rp["price"] = money(*p)
			}
			return M{
				"id":                  e.ID.String(),
				"registrar":           e.RegistrarID,
				"event_time":          ts(e.EventTime),
				"recurrence_end_time": ts(e.RecurrenceEndTime),
				"renewal_price":       rp,
			}
		}),
		"cancellations": list(l.Cancellations, func(e model.Cancellation) any {
			return M{
				"id":             e.ID.String(),
				"reason":         string(e.Reason),
				"registrar":      e.RegistrarID,
				"event_time":     ts(e.EventTime),
				"billing_time":   ts(e.BillingTime),
				"cancelled_kind": string(e.Cancelled.Kind),
				"cancelled_id":   e.Cancelled.ID.String(),
			}
		}),
	}
}
