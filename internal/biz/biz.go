package biz

import "github.com/google/wire"

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewBillingConfig,
	NewCheckoutURLs,
	NewHypervisorPlacement,
	NewPricingResolver,
	NewCreditLedgerUseCase,
	NewResourceUseCase,
	NewProvisioningUseCase,
	NewSubscriptionUseCase,
	NewCheckoutUseCase,
	NewWebhookUseCase,
	NewRenewalUseCase,
)
