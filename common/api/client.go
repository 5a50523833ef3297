package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/abevier/tsk/ratelimiter"
	"github.com/go-playground/validator"

	"github.com/gleanhub/go-claimsync"
	"github.com/gleanhub/go-claimsync/common"
	"github.com/gleanhub/go-claimsync/models"
)

// Client talks to the claim backend: POST /claims to create, PUT /claims/{id}
// to transition. All calls are funneled through rate limiters so replay bursts
// after a reconnect cannot hammer the server.
type Client struct {
	logger            models.Logger
	url               string
	token             string
	timeout           time.Duration
	validator         *validator.Validate
	createLimiter     *ratelimiter.RateLimiter[*models.CreateClaimParams, *models.Claim]
	transitionLimiter *ratelimiter.RateLimiter[*transitionRequest, *models.Claim]
}

var _ models.ClaimApi = &Client{}

type transitionRequest struct {
	claimId string
	params  *models.TransitionParams
}

// createClaimBody is the creation wire payload. ListingOwnerId stays local:
// the server resolves ownership from its own listing record.
type createClaimBody struct {
	ListingId       string  `json:"listingId"`
	RequestId       *string `json:"requestId,omitempty"`
	QuantityClaimed float64 `json:"quantityClaimed"`
	Notes           *string `json:"notes,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

func NewClaimApiClient(logger models.Logger) *Client {
	apiTimeout := common.DefaultRpcWaitTime
	if configApiTimeoutMs, found := os.LookupEnv(claimsync.Env_ApiTimeoutMs); found {
		if parsedApiTimeoutMs, err := strconv.Atoi(configApiTimeoutMs); err == nil {
			apiTimeout = time.Duration(parsedApiTimeoutMs) * time.Millisecond
		}
	}
	rlOpts := ratelimiter.Opts{
		Limit:             models.DefaultRateLimit,
		Burst:             models.DefaultRateLimit,
		MaxQueueDepth:     models.DefaultQueueDepthLimit,
		FullQueueStrategy: ratelimiter.BlockWhenFull,
	}
	client := &Client{
		logger:    logger,
		url:       os.Getenv(claimsync.Env_ApiUrl),
		token:     os.Getenv(claimsync.Env_ApiToken),
		timeout:   apiTimeout,
		validator: validator.New(),
	}
	client.createLimiter = ratelimiter.New(rlOpts, func(ctx context.Context, params *models.CreateClaimParams) (*models.Claim, error) {
		return client.doCreate(ctx, params)
	})
	client.transitionLimiter = ratelimiter.New(rlOpts, func(ctx context.Context, request *transitionRequest) (*models.Claim, error) {
		return client.doTransition(ctx, request.claimId, request.params)
	})
	return client
}

func (c *Client) CreateClaim(ctx context.Context, params *models.CreateClaimParams) (*models.Claim, error) {
	return c.createLimiter.Submit(ctx, params)
}

func (c *Client) TransitionClaim(ctx context.Context, claimId string, params *models.TransitionParams) (*models.Claim, error) {
	return c.transitionLimiter.Submit(ctx, &transitionRequest{claimId, params})
}

func (c *Client) doCreate(ctx context.Context, params *models.CreateClaimParams) (*models.Claim, error) {
	reqBody, err := json.Marshal(createClaimBody{
		ListingId:       params.ListingId,
		RequestId:       params.RequestId,
		QuantityClaimed: params.QuantityClaimed,
		Notes:           params.Notes,
	})
	if err != nil {
		return nil, &models.NetworkError{Op: "createClaim", Err: err}
	}
	return c.sendRequest(ctx, "createClaim", "POST", c.url+"/claims", reqBody)
}

func (c *Client) doTransition(ctx context.Context, claimId string, params *models.TransitionParams) (*models.Claim, error) {
	reqBody, err := json.Marshal(params)
	if err != nil {
		return nil, &models.NetworkError{Op: "transitionClaim", Err: err}
	}
	return c.sendRequest(ctx, "transitionClaim", "PUT", c.url+"/claims/"+claimId, reqBody)
}

func (c *Client) sendRequest(ctx context.Context, op, method, url string, reqBody []byte) (*models.Claim, error) {
	httpCtx, httpCancel := context.WithTimeout(ctx, c.timeout)
	defer httpCancel()

	req, err := http.NewRequestWithContext(httpCtx, method, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, &models.NetworkError{Op: op, Err: err}
	}
	req.Header.Add("Content-Type", "application/json")
	if len(c.token) > 0 {
		req.Header.Add("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.logger.Warnf("%s: error submitting request: %v", op, err)
		return nil, &models.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warnf("%s: error reading response: %v", op, err)
		return nil, &models.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warnf("%s: error in response: %v, %s", op, resp.StatusCode, respBody)
		return nil, &models.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: serverError(respBody)}
	}
	claim := new(models.Claim)
	if err = json.Unmarshal(respBody, claim); err != nil {
		c.logger.Warnf("%s: error unmarshaling response: %v", op, err)
		return nil, &models.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	// Trust nothing structurally unsound, even on a 2xx.
	if err = c.validator.Struct(claim); err != nil {
		c.logger.Warnf("%s: invalid claim in response: %v", op, err)
		return nil, &models.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return claim, nil
}

// serverError surfaces the backend's {"error": "..."} body when present.
func serverError(respBody []byte) error {
	parsed := errorBody{}
	if err := json.Unmarshal(respBody, &parsed); err == nil && len(parsed.Error) > 0 {
		return errors.New(parsed.Error)
	}
	return errors.New("error in response")
}
