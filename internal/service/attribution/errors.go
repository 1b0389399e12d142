package attribution

import "github.com/ignite/creatorhub/internal/pkg/apperr"

// Sentinel errors for the attribution service layer. Repository
// implementations return the not-found and conflict sentinels.
var (
	ErrCollaborationNotFound = apperr.New(apperr.KindNotFound, "collaboration_not_found", "collaboration not found")
	ErrBundleNotFound        = apperr.New(apperr.KindNotFound, "tracking_bundle_not_found", "tracking bundle not found")
	ErrResultNotFound        = apperr.New(apperr.KindNotFound, "attribution_result_not_found", "attribution result not found")

	ErrBundleExists     = apperr.New(apperr.KindConflict, "tracking_bundle_exists", "collaboration already has a tracking bundle")
	ErrCodeCollision    = apperr.New(apperr.KindConflict, "code_collision", "tracking code already in use")
	ErrDuplicateOrder   = apperr.New(apperr.KindConflict, "duplicate_order", "order already attributed")
	ErrCouponAlreadySet = apperr.New(apperr.KindConflict, "coupon_already_set", "bundle already has a different coupon code")

	ErrInvalidEventType  = apperr.New(apperr.KindValidation, "invalid_event_type", "event_type must be click, page_view or purchase")
	ErrInvalidOrderValue = apperr.New(apperr.KindValidation, "invalid_order_value", "order value must not be negative")
	ErrInvalidCoupon     = apperr.New(apperr.KindValidation, "invalid_coupon_code", "coupon code must be 3-32 letters or digits")
	ErrInvalidCodeType   = apperr.New(apperr.KindValidation, "invalid_code_type", "code type must be affiliate, short_link or coupon")
	ErrNoCode            = apperr.New(apperr.KindValidation, "code_required", "one of affiliate code, short code or coupon code is required")

	ErrCodeSpaceExhausted = apperr.New(apperr.KindInternal, "code_generation_failed", "could not generate a unique tracking code")
)
