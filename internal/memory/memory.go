// Package memory is an in-process store for development and tests. It keeps
// the same contracts as the SQLite repository, including referential checks.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"buckify/internal/core"
	"buckify/internal/ports"

	"github.com/google/uuid"
)

type state struct {
	households   map[string]core.Household
	categories   map[string]core.Category
	transactions map[string]core.Transaction
	imports      map[string]core.StatementImport
	// insertion sequence, used to order transactions on the same date
	txSeq map[string]int64
	next  int64
}

func newState() *state {
	return &state{
		households:   map[string]core.Household{},
		categories:   map[string]core.Category{},
		transactions: map[string]core.Transaction{},
		imports:      map[string]core.StatementImport{},
		txSeq:        map[string]int64{},
	}
}

// clone copies the maps. Stored values are never mutated in place, so a
// shallow copy is a full snapshot.
func (s *state) clone() *state {
	c := &state{
		households:   make(map[string]core.Household, len(s.households)),
		categories:   make(map[string]core.Category, len(s.categories)),
		transactions: make(map[string]core.Transaction, len(s.transactions)),
		imports:      make(map[string]core.StatementImport, len(s.imports)),
		txSeq:        make(map[string]int64, len(s.txSeq)),
		next:         s.next,
	}
	for k, v := range s.households {
		c.households[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.imports {
		c.imports[k] = v
	}
	for k, v := range s.txSeq {
		c.txSeq[k] = v
	}
	return c
}

type Store struct {
	mu       sync.Mutex
	st       *state
	defaults []string
	seeded   map[string]bool
}

var (
	_ ports.CategoryStore         = (*Store)(nil)
	_ ports.CategoryRepository    = (*Store)(nil)
	_ ports.TransactionRepository = (*Store)(nil)
	_ ports.DashboardReader       = (*Store)(nil)
	_ ports.HouseholdRepository   = (*Store)(nil)
	_ ports.ImportRepository      = (*Store)(nil)
	_ ports.Pinger                = (*Store)(nil)
)

// New returns an empty store. Households get one category per entry of
// defaults the first time their categories are listed or the household is
// created.
func New(defaults []string) *Store {
	return &Store{st: newState(), defaults: dedupe(defaults), seeded: map[string]bool{}}
}

func NewFromFiles(base string) *Store {
	cats := readLines(filepath.Join(base, "seed_categories.txt"))
	if len(cats) == 0 {
		cats = []string{"Groceries", "Housing", "Transport"}
	}
	return New(cats)
}

func (s *Store) Ping(context.Context) error { return nil }

// seedLocked creates the default categories for a household once, unless the
// household already has categories of its own.
func (s *Store) seedLocked(householdID string) {
	if s.seeded[householdID] {
		return
	}
	s.seeded[householdID] = true
	for _, c := range s.st.categories {
		if c.HouseholdID == householdID {
			return
		}
	}
	for _, name := range s.defaults {
		slug := core.UniqueSlug(core.Slugify(name), func(candidate string) bool {
			return s.st.slugTaken(householdID, candidate)
		})
		id := uuid.NewString()
		s.st.categories[id] = core.Category{ID: id, HouseholdID: householdID, Name: name, Slug: slug}
	}
}

// RunInTx runs fn against a snapshot and installs it only if fn succeeds.
// Transactions are serialized by the store mutex.
func (s *Store) RunInTx(ctx context.Context, fn func(tx ports.CategoryTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.st.clone()
	if err := fn(&memTx{st: snap}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = snap
	return nil
}

func (s *Store) CountTransactionsByCategory(_ context.Context, categoryID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.transactionsByCategory(categoryID)), nil
}

type memTx struct {
	st *state
}

func (t *memTx) GetCategory(_ context.Context, id string) (core.Category, error) {
	return t.st.getCategory(id)
}

func (t *memTx) FindCategoryBySlug(_ context.Context, householdID, slug string) (core.Category, error) {
	for _, c := range t.st.categories {
		if c.HouseholdID == householdID && c.Slug == slug {
			return c, nil
		}
	}
	return core.Category{}, ports.ErrNotFound
}

func (t *memTx) ListTransactionsByCategory(_ context.Context, categoryID string) ([]core.Transaction, error) {
	return t.st.transactionsByCategory(categoryID), nil
}

func (t *memTx) UpdateTransactionCategory(_ context.Context, transactionID, categoryID string) error {
	tr, ok := t.st.transactions[transactionID]
	if !ok {
		return ports.ErrNotFound
	}
	if _, ok := t.st.categories[categoryID]; !ok {
		return fmt.Errorf("category %s does not exist", categoryID)
	}
	tr.CategoryID = categoryID
	t.st.transactions[transactionID] = tr
	return nil
}

func (t *memTx) DeleteTransaction(_ context.Context, id string) error {
	return t.st.deleteTransaction(id)
}

func (t *memTx) DeleteCategory(_ context.Context, id string) error {
	if _, ok := t.st.categories[id]; !ok {
		return ports.ErrNotFound
	}
	if n := len(t.st.transactionsByCategory(id)); n > 0 {
		return fmt.Errorf("category %s still referenced by %d transactions", id, n)
	}
	delete(t.st.categories, id)
	return nil
}

func (s *state) getCategory(id string) (core.Category, error) {
	c, ok := s.categories[id]
	if !ok {
		return core.Category{}, ports.ErrNotFound
	}
	return c, nil
}

func (s *state) slugTaken(householdID, slug string) bool {
	for _, c := range s.categories {
		if c.HouseholdID == householdID && c.Slug == slug {
			return true
		}
	}
	return false
}

func (s *state) transactionsByCategory(categoryID string) []core.Transaction {
	var out []core.Transaction
	for _, t := range s.transactions {
		if t.CategoryID == categoryID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.txSeq[out[i].ID] < s.txSeq[out[j].ID] })
	return out
}

func (s *state) insertTransaction(t core.Transaction) error {
	if _, ok := s.transactions[t.ID]; ok {
		return fmt.Errorf("transaction %s already exists", t.ID)
	}
	if _, ok := s.categories[t.CategoryID]; !ok {
		return fmt.Errorf("category %s does not exist", t.CategoryID)
	}
	s.next++
	s.transactions[t.ID] = t
	s.txSeq[t.ID] = s.next
	return nil
}

func (s *state) deleteTransaction(id string) error {
	if _, ok := s.transactions[id]; !ok {
		return ports.ErrNotFound
	}
	delete(s.transactions, id)
	delete(s.txSeq, id)
	return nil
}

// Categories

func (s *Store) CreateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.categories[c.ID]; ok {
		return fmt.Errorf("category %s already exists", c.ID)
	}
	if s.st.slugTaken(c.HouseholdID, c.Slug) {
		return fmt.Errorf("slug %q already used in household %s", c.Slug, c.HouseholdID)
	}
	s.st.categories[c.ID] = c
	return nil
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.st.categories[c.ID]
	if !ok {
		return ports.ErrNotFound
	}
	if c.Slug != old.Slug && s.st.slugTaken(old.HouseholdID, c.Slug) {
		return fmt.Errorf("slug %q already used in household %s", c.Slug, old.HouseholdID)
	}
	c.HouseholdID = old.HouseholdID
	s.st.categories[c.ID] = c
	return nil
}

func (s *Store) GetCategory(_ context.Context, id string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.getCategory(id)
}

func (s *Store) ListCategories(_ context.Context, householdID string) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seedLocked(householdID)
	var out []core.Category
	for _, c := range s.st.categories {
		if c.HouseholdID == householdID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) SlugExists(_ context.Context, householdID, slug string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.slugTaken(householdID, slug), nil
}

// Transactions

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.insertTransaction(t)
}

// CreateTransactions inserts all of ts or none of them.
func (s *Store) CreateTransactions(_ context.Context, ts []core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.st.clone()
	for _, t := range ts {
		if err := snap.insertTransaction(t); err != nil {
			return err
		}
	}
	s.st = snap
	return nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.st.transactions[t.ID]
	if !ok {
		return ports.ErrNotFound
	}
	if _, ok := s.st.categories[t.CategoryID]; !ok {
		return fmt.Errorf("category %s does not exist", t.CategoryID)
	}
	t.HouseholdID = old.HouseholdID
	s.st.transactions[t.ID] = t
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.st.transactions[id]
	if !ok {
		return core.Transaction{}, ports.ErrNotFound
	}
	return t, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.deleteTransaction(id)
}

func (s *Store) ListTransactions(_ context.Context, householdID string, from, to core.Date) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.st.inRange(householdID, from, to)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return s.st.txSeq[out[i].ID] > s.st.txSeq[out[j].ID]
	})
	return out, nil
}

func (s *state) inRange(householdID string, from, to core.Date) []core.Transaction {
	var out []core.Transaction
	for _, t := range s.transactions {
		if t.HouseholdID != householdID {
			continue
		}
		if t.Date.Before(from.Time) || t.Date.After(to.Time) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Dashboard

func (s *Store) MonthTotal(_ context.Context, householdID string, from, to core.Date) (core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total core.Money
	for _, t := range s.st.inRange(householdID, from, to) {
		total.Cents += t.Amount.Cents
	}
	return total, nil
}

func (s *Store) CategorySums(_ context.Context, householdID string, from, to core.Date) ([]core.CategorySum, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := map[string]*core.CategorySum{}
	for _, t := range s.st.inRange(householdID, from, to) {
		sum, ok := byID[t.CategoryID]
		if !ok {
			sum = &core.CategorySum{CategoryID: t.CategoryID}
			byID[t.CategoryID] = sum
		}
		sum.Total.Cents += t.Amount.Cents
		sum.Count++
	}
	out := make([]core.CategorySum, 0, len(byID))
	for _, sum := range byID {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total.Cents != out[j].Total.Cents {
			return out[i].Total.Cents > out[j].Total.Cents
		}
		return out[i].CategoryID < out[j].CategoryID
	})
	return out, nil
}

// Households

func (s *Store) CreateHousehold(_ context.Context, h core.Household) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.households[h.ID]; ok {
		return fmt.Errorf("household %s already exists", h.ID)
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	h.MemberIDs = dedupe(h.MemberIDs)
	s.st.households[h.ID] = h
	s.seedLocked(h.ID)
	return nil
}

func (s *Store) GetHousehold(_ context.Context, id string) (core.Household, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.st.households[id]
	if !ok {
		return core.Household{}, ports.ErrNotFound
	}
	h.MemberIDs = append([]string(nil), h.MemberIDs...)
	return h, nil
}

func (s *Store) AddMember(_ context.Context, householdID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.st.households[householdID]
	if !ok {
		return ports.ErrNotFound
	}
	h.MemberIDs = dedupe(append(append([]string(nil), h.MemberIDs...), userID))
	s.st.households[householdID] = h
	return nil
}

// Statement imports

func (s *Store) CreateImport(_ context.Context, imp core.StatementImport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.imports[imp.ID]; ok {
		return fmt.Errorf("import %s already exists", imp.ID)
	}
	now := time.Now().UTC()
	if imp.CreatedAt.IsZero() {
		imp.CreatedAt = now
	}
	if imp.UpdatedAt.IsZero() {
		imp.UpdatedAt = imp.CreatedAt
	}
	imp.Content = append([]byte(nil), imp.Content...)
	imp.Rows = append([]core.ImportRow(nil), imp.Rows...)
	s.st.imports[imp.ID] = imp
	return nil
}

func (s *Store) GetImport(_ context.Context, id string) (core.StatementImport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	imp, ok := s.st.imports[id]
	if !ok {
		return core.StatementImport{}, ports.ErrNotFound
	}
	imp.Rows = append([]core.ImportRow(nil), imp.Rows...)
	return imp, nil
}

func (s *Store) SaveImportResult(_ context.Context, id string, status core.ImportStatus, rows []core.ImportRow, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	imp, ok := s.st.imports[id]
	if !ok {
		return ports.ErrNotFound
	}
	imp.Status = status
	imp.Error = errMsg
	imp.Rows = append([]core.ImportRow(nil), rows...)
	imp.UpdatedAt = time.Now().UTC()
	s.st.imports[id] = imp
	return nil
}

func (s *Store) ConfirmImport(_ context.Context, id string, ts []core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	imp, ok := s.st.imports[id]
	if !ok {
		return ports.ErrNotFound
	}
	if imp.Status != core.ImportReady {
		return ports.ErrStaleState
	}
	snap := s.st.clone()
	for _, t := range ts {
		if err := snap.insertTransaction(t); err != nil {
			return err
		}
	}
	imp.Status = core.ImportConfirmed
	imp.UpdatedAt = time.Now().UTC()
	snap.imports[id] = imp
	s.st = snap
	return nil
}

func (s *Store) PurgeImportsBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, imp := range s.st.imports {
		if imp.CreatedAt.Before(cutoff) {
			delete(s.st.imports, id)
			n++
		}
	}
	return n, nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupe(out)
}

// dedupe drops blanks and repeats, preserving input order.
func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
