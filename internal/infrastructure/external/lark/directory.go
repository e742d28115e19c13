package lark

import (
	"context"
	"fmt"

	larkcontact "github.com/larksuite/oapi-sdk-go/v3/service/contact/v3"
	"go.uber.org/zap"

	"github.com/garyjia/refund-approval/internal/domain/entity"
)

// Directory implements port.IdentityDirectory on the contact API
type Directory struct {
	client *Client
	logger *zap.Logger
}

// NewDirectory creates a new Lark identity directory
func NewDirectory(client *Client, logger *zap.Logger) *Directory {
	return &Directory{
		client: client,
		logger: logger,
	}
}

// LookupByEmail resolves an email to an open_id, then fetches the display name
func (d *Directory) LookupByEmail(ctx context.Context, email string) (*entity.Identity, error) {
	req := larkcontact.NewBatchGetIdUserReqBuilder().
		UserIdType("open_id").
		Body(larkcontact.NewBatchGetIdUserReqBodyBuilder().
			Emails([]string{email}).
			Build()).
		Build()

	resp, err := d.client.client.Contact.User.BatchGetId(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("batch get id: %w: %v", entity.ErrUpstreamUnavailable, err)
	}
	if !resp.Success() {
		return nil, apiError("batch get id", resp.Code, resp.Msg)
	}

	var openID string
	if resp.Data != nil {
		for _, u := range resp.Data.UserList {
			if u != nil && u.UserId != nil && *u.UserId != "" {
				openID = *u.UserId
				break
			}
		}
	}
	if openID == "" {
		return nil, fmt.Errorf("user %s: %w", email, entity.ErrNotFound)
	}

	identity := &entity.Identity{Email: email, UserID: openID}

	userReq := larkcontact.NewGetUserReqBuilder().
		UserId(openID).
		UserIdType("open_id").
		Build()
	userResp, err := d.client.client.Contact.User.Get(ctx, userReq)
	switch {
	case err != nil:
		d.logger.Warn("Failed to get user name", zap.String("open_id", openID), zap.Error(err))
	case !userResp.Success():
		d.logger.Warn("API returned failure",
			zap.String("open_id", openID),
			zap.Int("code", userResp.Code),
			zap.String("msg", userResp.Msg))
	case userResp.Data != nil && userResp.Data.User != nil && userResp.Data.User.Name != nil:
		identity.Name = *userResp.Data.User.Name
	}

	return identity, nil
}
