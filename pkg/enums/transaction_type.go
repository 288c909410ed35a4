package enums

import "fmt"

// TransactionType maps to the transaction_type_enum enum in Postgres.
type TransactionType string

const (
	TransactionTypeContentUnlock   TransactionType = "content_unlock"
	TransactionTypeProfileUnlock   TransactionType = "profile_unlock"
	TransactionTypeMessageUnlock   TransactionType = "message_unlock"
	TransactionTypeBundleUnlock    TransactionType = "bundle_unlock"
	TransactionTypeTip             TransactionType = "tip"
	TransactionTypeSpecialOffer    TransactionType = "special_offer"
	TransactionTypeCustomContent   TransactionType = "custom_content"
	TransactionTypeVideoCall       TransactionType = "video_call"
	TransactionTypePriorityMessage TransactionType = "priority_message"
	TransactionTypeSuperLike       TransactionType = "super_like"
	TransactionTypeProfileBoost    TransactionType = "profile_boost"
	TransactionTypeWalletTopup     TransactionType = "wallet_topup"
	TransactionTypePayout          TransactionType = "payout"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeContentUnlock,
	TransactionTypeProfileUnlock,
	TransactionTypeMessageUnlock,
	TransactionTypeBundleUnlock,
	TransactionTypeTip,
	TransactionTypeSpecialOffer,
	TransactionTypeCustomContent,
	TransactionTypeVideoCall,
	TransactionTypePriorityMessage,
	TransactionTypeSuperLike,
	TransactionTypeProfileBoost,
	TransactionTypeWalletTopup,
	TransactionTypePayout,
}

// String implements fmt.Stringer.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value matches the canonical transaction type enum.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// GrantsContentAccess reports whether a completed transaction of this type can
// entitle a member to a content item.
func (t TransactionType) GrantsContentAccess() bool {
	switch t {
	case TransactionTypeContentUnlock, TransactionTypeBundleUnlock, TransactionTypeProfileUnlock:
		return true
	default:
		return false
	}
}

// IsExclusiveUnlock reports whether at most one live row may exist per member and target.
func (t TransactionType) IsExclusiveUnlock() bool {
	return t.GrantsContentAccess()
}

// ParseTransactionType converts raw input into TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
