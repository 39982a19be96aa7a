/*
Package quorum computes the signer list of an escrow account.

An escrow account is created whenever at least one of the payment parties
did not pass vendor verification. The account is controlled exclusively by a
weighted multi signature: a party that failed verification gets a weight that
is never enough to move the funds, a party that passed and the arbiter get
full weight. The required weight decides who must agree before the escrow
can be released.
*/
package quorum
