package dialogue

// Beat names used by the negotiation choreography. The dialogue pack is
// bucketed by these names.
const (
	// BeatGreeting opens the chat: the agent acknowledges the user's offer.
	BeatGreeting = "greeting"
	// BeatRelay is the agent relaying the offer to the supplier.
	BeatRelay = "relay"
	// BeatCounter carries the supplier's counter-offer. Its text is filled
	// just-in-time once the counter price is known.
	BeatCounter = "counter"
	// BeatPrompt asks the user to decide within the decision window.
	BeatPrompt = "prompt"
)
