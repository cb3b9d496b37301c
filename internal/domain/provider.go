package domain

type Provider string

const (
	ProviderGoCardless   Provider = "gocardless"
	ProviderMultiSafepay Provider = "multisafepay"
)

func (p Provider) IsValid() bool {
	switch p {
	case ProviderGoCardless, ProviderMultiSafepay:
		return true
	}
	return false
}
