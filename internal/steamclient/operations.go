package steamclient

import "context"

type loginRequest struct {
	AccountName string `json:"account_name"`
	Password    string `json:"password"`
	TwoFactorCode string `json:"twofactor_code"`
}

type loginResponse struct {
	SteamID string `json:"steam_id"`
	Cookies string `json:"cookies"`
}

func (c *HTTPClient) Login(ctx context.Context, secrets Secrets) (Session, error) {
	var resp loginResponse
	err := c.do(ctx, "POST", "/login", loginRequest{
		AccountName:   secrets.AccountName,
		Password:      secrets.Password,
		TwoFactorCode: secrets.TOTPCode,
	}, &resp)
	if err != nil {
		return Session{}, err
	}
	return Session{SteamID: resp.SteamID, Cookies: resp.Cookies}, nil
}

func (c *HTTPClient) Restore(ctx context.Context, session Session) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	if err := c.do(ctx, "POST", "/session/restore", session, &resp); err != nil {
		return false, err
	}
	return resp.Valid, nil
}

type sendOfferRequest struct {
	PartnerSteamID string `json:"partner_steam_id"`
	TradeToken     string `json:"trade_token"`
	TheirItems     []Item `json:"their_items"`
	MyItems        []Item `json:"my_items"`
	Message        string `json:"message"`
}

func (c *HTTPClient) SendOffer(ctx context.Context, session Session, partnerSteamID, tradeToken string, theirItems, myItems []Item, message string) (string, error) {
	var resp struct {
		OfferID string `json:"offer_id"`
	}
	err := c.do(ctx, "POST", "/trade/offer", sendOfferRequest{
		PartnerSteamID: partnerSteamID,
		TradeToken:     tradeToken,
		TheirItems:     theirItems,
		MyItems:        myItems,
		Message:        message,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.OfferID, nil
}

func (c *HTTPClient) AcceptOffer(ctx context.Context, session Session, offerID string) error {
	return c.do(ctx, "POST", "/trade/offer/"+offerID+"/accept", nil, nil)
}

func (c *HTTPClient) CancelOffer(ctx context.Context, session Session, offerID string) error {
	return c.do(ctx, "POST", "/trade/offer/"+offerID+"/cancel", nil, nil)
}

func (c *HTTPClient) PollOffer(ctx context.Context, session Session, offerID string) (OfferState, error) {
	var resp struct {
		State OfferState `json:"state"`
	}
	if err := c.do(ctx, "GET", "/trade/offer/"+offerID, nil, &resp); err != nil {
		return "", err
	}
	return resp.State, nil
}

func (c *HTTPClient) FetchInventory(ctx context.Context, owner string, appID, contextID int) ([]Item, error) {
	var resp struct {
		Items []Item `json:"items"`
	}
	path := "/inventory/" + owner
	if err := c.do(ctx, "GET", path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

var _ Client = (*HTTPClient)(nil)
