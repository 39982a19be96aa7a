/*

Package clearpay defines the vocabulary shared by all clearpay packages:
ledger addresses, transaction and verification statuses, party roles and
signer credentials.

A payment between two parties is first cleared by a set of risk vendors
(see x/verify). A cleared payment is sent directly. When any of the parties
fails verification, funds are moved to an escrow account controlled by a
weighted multi signature (see x/quorum) and released only after the
required parties agree (see x/transfer).

*/

package clearpay
