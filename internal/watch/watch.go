// Package watch matches awarded suppliers against user watchlists and
// raises notifications for new contracts, regions, and sectors.
package watch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/tenderscope/intel-cli/internal/model"
)

// Store is the slice of the persistence layer the watcher uses.
type Store interface {
	ListWatchEntries(ctx context.Context) ([]model.WatchEntry, error)
	InsertNotification(ctx context.Context, n *model.Notification) error
	RecentNotificationExists(ctx context.Context, userID, supplierName, title string, since time.Time) (bool, error)
	UpdateWatchSnapshot(ctx context.Context, entryID int64, snapshot *model.WatchSnapshot) error
}

// dedupWindow is how long an identical (user, supplier, title) alert is
// suppressed. Re-ingested pages re-surface the same awards; without this the
// same win would alert on every pass.
const dedupWindow = 24 * time.Hour

// supplierSuffixes are trailing legal-form tokens ignored when matching.
var supplierSuffixes = map[string]bool{
	"ltd": true, "limited": true, "plc": true, "llp": true, "llc": true,
	"inc": true, "co": true, "group": true, "holdings": true, "uk": true,
}

// NormalizeSupplierName lowers a supplier name, strips punctuation, and
// drops trailing legal-form suffixes.
func NormalizeSupplierName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	tokens := strings.Fields(b.String())
	for len(tokens) > 1 && supplierSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// Matcher indexes watch entries for containment matching against awarded
// supplier names.
type Matcher struct {
	entries []model.WatchEntry
}

// NewMatcher builds a matcher over the given entries.
func NewMatcher(entries []model.WatchEntry) *Matcher {
	return &Matcher{entries: entries}
}

// Match returns the watch entries whose normalized name is contained in the
// supplier's normalized name or vice versa. "Acme" matches "Acme Civil
// Engineering"; "Acme Civil Engineering Ltd" matches a watched "Acme Civil".
func (m *Matcher) Match(supplierName string) []*model.WatchEntry {
	norm := NormalizeSupplierName(supplierName)
	if norm == "" {
		return nil
	}
	var out []*model.WatchEntry
	for i := range m.entries {
		watched := m.entries[i].NormalizedName
		if watched == "" {
			continue
		}
		if strings.Contains(norm, watched) || strings.Contains(watched, norm) {
			out = append(out, &m.entries[i])
		}
	}
	return out
}

// Watcher consumes award notices and raises watchlist notifications.
// It is wired into the sync pipeline as its award sink.
type Watcher struct {
	store   Store
	printer *message.Printer
	now     func() time.Time
	log     *zap.Logger
}

// New creates a Watcher.
func New(store Store) *Watcher {
	return &Watcher{
		store:   store,
		printer: message.NewPrinter(language.BritishEnglish),
		now:     time.Now,
		log:     zap.L().With(zap.String("component", "watch")),
	}
}

// OnAwards checks every awarded supplier on the page against the watchlist.
// Snapshot and notification failures for one entry are logged and swallowed;
// they never fail the caller.
func (w *Watcher) OnAwards(ctx context.Context, contracts []model.Contract, contractIDs map[string]int64) error {
	entries, err := w.store.ListWatchEntries(ctx)
	if err != nil {
		return eris.Wrap(err, "watch: load entries")
	}
	if len(entries) == 0 {
		return nil
	}
	matcher := NewMatcher(entries)

	for i := range contracts {
		c := &contracts[i]
		var contractID *int64
		if id, ok := contractIDs[c.NoticeID]; ok {
			contractID = &id
		}
		for _, supplier := range c.AwardedSuppliers {
			for _, entry := range matcher.Match(supplier.Name) {
				w.handleMatch(ctx, entry, c, contractID)
			}
		}
	}
	return nil
}

func (w *Watcher) handleMatch(ctx context.Context, entry *model.WatchEntry, c *model.Contract, contractID *int64) {
	title := fmt.Sprintf("New contract won: %s", c.Title)
	since := w.now().Add(-dedupWindow)

	exists, err := w.store.RecentNotificationExists(ctx, entry.UserID, entry.SupplierName, title, since)
	if err != nil {
		w.log.Warn("notification dedup check failed", zap.Error(err))
		return
	}
	if !exists {
		w.notify(ctx, entry, model.NotifyNewContract, title, w.contractBody(c), contractID)
	}

	w.updateSnapshot(ctx, entry, c, contractID)
}

// contractBody summarizes the win, with the award value in GBP grouping.
func (w *Watcher) contractBody(c *model.Contract) string {
	body := fmt.Sprintf("%s awarded by %s", c.Title, c.BuyerName)
	if c.AwardValue != nil {
		body += w.printer.Sprintf(" for £%v", number.Decimal(*c.AwardValue))
	}
	if c.Sector != "" {
		body += fmt.Sprintf(" (%s)", c.Sector)
	}
	return body
}

// updateSnapshot extends the entry's footprint. Union only: regions and
// sectors are never removed, and a brand-new region or sector raises its own
// notification.
func (w *Watcher) updateSnapshot(ctx context.Context, entry *model.WatchEntry, c *model.Contract, contractID *int64) {
	snap := entry.Snapshot
	if snap == nil {
		snap = &model.WatchSnapshot{}
	}

	if c.BuyerRegion != "" && !contains(snap.Regions, c.BuyerRegion) {
		snap.Regions = append(snap.Regions, c.BuyerRegion)
		if len(snap.Regions) > 1 || snap.ContractCount > 0 {
			w.notify(ctx, entry, model.NotifyNewRegion,
				fmt.Sprintf("%s is now active in %s", entry.SupplierName, c.BuyerRegion),
				fmt.Sprintf("First contract seen in %s: %s", c.BuyerRegion, c.Title), contractID)
		}
	}
	if c.Sector != "" && !contains(snap.Sectors, c.Sector) {
		snap.Sectors = append(snap.Sectors, c.Sector)
		if len(snap.Sectors) > 1 || snap.ContractCount > 0 {
			w.notify(ctx, entry, model.NotifyNewSector,
				fmt.Sprintf("%s entered the %s sector", entry.SupplierName, c.Sector),
				fmt.Sprintf("First %s contract: %s", c.Sector, c.Title), contractID)
		}
	}
	snap.ContractCount++
	snap.SnapshotAt = w.now()

	entry.Snapshot = snap
	if err := w.store.UpdateWatchSnapshot(ctx, entry.ID, snap); err != nil {
		w.log.Warn("snapshot update failed",
			zap.Int64("entry_id", entry.ID), zap.Error(err))
	}
}

func (w *Watcher) notify(ctx context.Context, entry *model.WatchEntry, kind model.NotificationType, title, body string, contractID *int64) {
	n := &model.Notification{
		ID:           uuid.NewString(),
		UserID:       entry.UserID,
		Type:         kind,
		Title:        title,
		Body:         body,
		SupplierName: entry.SupplierName,
		ContractID:   contractID,
	}
	if err := w.store.InsertNotification(ctx, n); err != nil {
		w.log.Warn("notification insert failed",
			zap.String("type", string(kind)), zap.Error(err))
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
