/*
Package transfer drives payments between two parties through their
lifecycle.

A new transfer is verified by every selected risk vendor. When both
parties pass, the sender is asked to sign a direct payment to the
recipient. Otherwise an escrow account is provisioned whose signer list
gives the arbiter and the clearing party the power to release the funds,
and the sender is asked to fund the escrow.

Funds held in escrow are released by a settlement payment signed by the
parties the policy requires. Each party approves or rejects by signing a
contribution to the settlement. Once the required contributions are
recorded, the settlement is submitted: to the recipient if the parties
approved, back to the sender if they rejected.

Every state change is appended to the transfer status log. A transfer that
reached SUCCESS or FAILED is never changed again.
*/
package transfer
