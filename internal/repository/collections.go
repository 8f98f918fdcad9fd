package repository

const (
	CollectionUsers         = "users"
	CollectionAdmins        = "admins"
	CollectionAddresses     = "addresses"
	CollectionCarts         = "carts"
	CollectionProducts      = "products"
	CollectionOrders        = "orders"
	CollectionRefunds       = "refunds"
	CollectionOtps          = "otps"
	CollectionRefreshTokens = "refresh_tokens"
	CollectionOrderEvents   = "order_events"
)
