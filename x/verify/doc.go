/*
Package verify runs risk vendor checks against the parties of a payment.

Every vendor is a Checker registered under its name. The Aggregator runs all
checks of a transaction concurrently, records the result of each check and
classifies a party as rejected if any vendor rejected it. A check that fails
to complete is recorded as a rejection.
*/
package verify
