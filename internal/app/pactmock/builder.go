package pactmock

// InteractionBuilder registers an interaction in the given/uponReceiving/
// with/willRespondWith order.
type InteractionBuilder struct {
	session     *Session
	interaction Interaction
}

func (s *Session) Given(providerState string) *InteractionBuilder {
	return &InteractionBuilder{session: s, interaction: Interaction{ProviderState: providerState}}
}

func (s *Session) UponReceiving(description string) *InteractionBuilder {
	return &InteractionBuilder{session: s, interaction: Interaction{Description: description}}
}

func (b *InteractionBuilder) UponReceiving(description string) *InteractionBuilder {
	b.interaction.Description = description
	return b
}

func (b *InteractionBuilder) With(request Request) *InteractionBuilder {
	b.interaction.Request = request
	return b
}

// WillRespondWith completes the interaction and registers it.
func (b *InteractionBuilder) WillRespondWith(response Response) error {
	b.interaction.Response = response
	return b.session.AddInteraction(b.interaction)
}
