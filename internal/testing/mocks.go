package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/merchantpos/paysync/internal/domain"
)

// HTTPError is a failed merchant API response
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string        { return fmt.Sprintf("merchant API returned %d", e.Status) }
func (e *HTTPError) HTTPStatus() int      { return e.Status }
func (e *HTTPError) ResponseBody() []byte { return []byte(e.Body) }

// MockMerchantAPI is a mock of the merchant API transport for testing.
// It serves the orders, deposits and profile it was given and counts calls per method.
type MockMerchantAPI struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	deposits map[string]domain.Deposit
	profile  *domain.MerchantProfile
	err      error
	calls    map[string]int
}

// NewMockMerchantAPI creates an empty mock
func NewMockMerchantAPI() *MockMerchantAPI {
	return &MockMerchantAPI{
		orders:   make(map[string]domain.Order),
		deposits: make(map[string]domain.Deposit),
		calls:    make(map[string]int),
	}
}

// SetOrders replaces the served orders
func (m *MockMerchantAPI) SetOrders(orders []domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = make(map[string]domain.Order, len(orders))
	for _, o := range orders {
		m.orders[o.ID] = o
	}
}

// SetDeposits replaces the served deposits
func (m *MockMerchantAPI) SetDeposits(deposits []domain.Deposit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deposits = make(map[string]domain.Deposit, len(deposits))
	for _, d := range deposits {
		m.deposits[d.ID] = d
	}
}

// SetProfile sets the served profile
func (m *MockMerchantAPI) SetProfile(p domain.MerchantProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = &p
}

// SetError makes every call fail with err until cleared with nil
func (m *MockMerchantAPI) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times method was called
func (m *MockMerchantAPI) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MockMerchantAPI) record(method string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[method]++
	return m.err
}

// ListOrders returns the orders with the given status; "" and "all" return every order
func (m *MockMerchantAPI) ListOrders(_ context.Context, status string) ([]domain.Order, error) {
	if err := m.record("ListOrders"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if status == "" || status == "all" || o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

// GetOrder returns one order or a 404
func (m *MockMerchantAPI) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	if err := m.record("GetOrder"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, &HTTPError{Status: 404, Body: `{"code":"NOT_FOUND"}`}
	}
	return &o, nil
}

// ListDeposits returns the deposits with the given status; "" and "all" return every deposit
func (m *MockMerchantAPI) ListDeposits(_ context.Context, status string) ([]domain.Deposit, error) {
	if err := m.record("ListDeposits"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Deposit
	for _, d := range m.deposits {
		if status == "" || status == "all" || d.Status == status {
			out = append(out, d)
		}
	}
	return out, nil
}

// GetDeposit returns one deposit or a 404
func (m *MockMerchantAPI) GetDeposit(_ context.Context, id string) (*domain.Deposit, error) {
	if err := m.record("GetDeposit"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deposits[id]
	if !ok {
		return nil, &HTTPError{Status: 404, Body: `{"code":"NOT_FOUND"}`}
	}
	return &d, nil
}

// GetProfile returns the profile, or a 401 when none is set
func (m *MockMerchantAPI) GetProfile(_ context.Context) (*domain.MerchantProfile, error) {
	if err := m.record("GetProfile"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return nil, &HTTPError{Status: 401}
	}
	p := *m.profile
	return &p, nil
}
