/*
Package ledger is the operational interface to the ledger network.

The Gateway keeps a single, lazily established connection to the network.
When a call fails with a network error, the connection is re-established
and the call is retried. Concurrent failures share a single reconnect.

Besides account queries and transaction submission, the gateway builds the
transactions used by clearpay and provisions escrow accounts. An escrow
account is funded, given a weighted signer list and a trust line to the
issuer, and finally has its master key disabled so that only the signer list
can move the funds.
*/
package ledger
