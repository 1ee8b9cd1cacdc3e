// Package channel is the inter-module communication library handed to every
// module at load time.
//
// A Channel routes each command by its address. `alias:locator` targets the
// module named by alias, split on the first colon so the locator may contain
// colons itself; a bare locator targets the default alias. The alias passes
// through the redirect table once.
//
// Subscriptions to the same target channel share one underlying transport
// subscription. Every Subscribe call adds a consumer, owned by the returned
// SubscriberID, that drains events into its handler on a dedicated
// goroutine. Unsubscribe removes exactly the consumers of one subscriber and
// releases the transport subscription once no consumer is left.
package channel
