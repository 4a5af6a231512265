package steamclient

import (
	"context"
	"fmt"
	"sync"
)

// FakeClient is a scripted Client double for exercising the trade engine
// and reconciler against the end-to-end scenarios of spec.md §8 without a
// live Steam dependency.
type FakeClient struct {
	mu sync.Mutex

	LoginFunc   func(Secrets) (Session, error)
	offerStates map[string]OfferState
	offerSeq    int
	sendErr     error
	pollErr     error
	inventories map[string][]Item
	invErr      error
}

// NewFake creates an empty FakeClient; every offer starts OfferActive
// once sent.
func NewFake() *FakeClient {
	return &FakeClient{offerStates: make(map[string]OfferState), inventories: make(map[string][]Item)}
}

// SeedInventory records the items a given Steam id owns, as observed by
// the next FetchInventory call. A seller never seeded here is reported
// as owning nothing, matching an empty real-world inventory response.
func (f *FakeClient) SeedInventory(steamID string, items ...Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inventories[steamID] = items
}

// FailNextInventoryFetch makes the next FetchInventory call return err,
// simulating a Steam API outage rather than a confirmed-missing item.
func (f *FakeClient) FailNextInventoryFetch(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invErr = err
}

// SetOfferState lets a test script an offer's authoritative state, as
// observed on the next PollOffer call (simulating the Steam side
// accepting/declining/cancelling).
func (f *FakeClient) SetOfferState(offerID string, state OfferState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offerStates[offerID] = state
}

// FailNextSend makes the next SendOffer call return err.
func (f *FakeClient) FailNextSend(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

// FailNextPoll makes the next PollOffer call return err, simulating a
// transient Steam API outage while an offer is already in flight.
func (f *FakeClient) FailNextPoll(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollErr = err
}

func (f *FakeClient) Login(_ context.Context, secrets Secrets) (Session, error) {
	if f.LoginFunc != nil {
		return f.LoginFunc(secrets)
	}
	return Session{SteamID: secrets.AccountName, Cookies: "fake-cookie"}, nil
}

func (f *FakeClient) Restore(_ context.Context, session Session) (bool, error) {
	return session.Cookies != "", nil
}

func (f *FakeClient) SendOffer(_ context.Context, _ Session, _, _ string, _, _ []Item, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		err := f.sendErr
		f.sendErr = nil
		return "", err
	}

	f.offerSeq++
	offerID := fmt.Sprintf("fake-offer-%d", f.offerSeq)
	f.offerStates[offerID] = OfferActive
	return offerID, nil
}

func (f *FakeClient) AcceptOffer(_ context.Context, _ Session, offerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offerStates[offerID] = OfferAccepted
	return nil
}

func (f *FakeClient) CancelOffer(_ context.Context, _ Session, offerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offerStates[offerID] = OfferCancelled
	return nil
}

func (f *FakeClient) PollOffer(_ context.Context, _ Session, offerID string) (OfferState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pollErr != nil {
		err := f.pollErr
		f.pollErr = nil
		return "", err
	}
	state, ok := f.offerStates[offerID]
	if !ok {
		return OfferInvalid, nil
	}
	return state, nil
}

func (f *FakeClient) FetchInventory(_ context.Context, owner string, _, _ int) ([]Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.invErr != nil {
		err := f.invErr
		f.invErr = nil
		return nil, err
	}
	return f.inventories[owner], nil
}

var _ Client = (*FakeClient)(nil)
