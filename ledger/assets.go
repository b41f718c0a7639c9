package ledger

import (
	"context"
	"time"

	"tokensale/core/identity"
)

// AssetStoreClient talks to the external asset store over JSON-RPC. It
// implements sale.AssetStore.
type AssetStoreClient struct {
	rpc *rpcClient
}

// NewAssetStoreClient builds a client for the asset-store JSON-RPC endpoint.
func NewAssetStoreClient(baseURL, authToken string, timeout time.Duration) *AssetStoreClient {
	return &AssetStoreClient{rpc: newRPCClient(baseURL, authToken, timeout)}
}

type permissionParams struct {
	Store   string `json:"store"`
	Grantee string `json:"grantee"`
}

// GrantEditPermission authorizes grantee to edit the store's assets.
func (c *AssetStoreClient) GrantEditPermission(ctx context.Context, store, grantee identity.Handle) error {
	params := permissionParams{Store: store.String(), Grantee: grantee.String()}
	return c.rpc.call(ctx, "assets_grantEditPermission", []interface{}{params}, nil)
}

// RevokeEditPermission withdraws grantee's edit rights on the store's assets.
func (c *AssetStoreClient) RevokeEditPermission(ctx context.Context, store, grantee identity.Handle) error {
	params := permissionParams{Store: store.String(), Grantee: grantee.String()}
	return c.rpc.call(ctx, "assets_revokeEditPermission", []interface{}{params}, nil)
}
