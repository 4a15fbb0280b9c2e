package marketsdk

var transactionStepIDs = map[StepID]bool{
	StepIDTokenApproval: true,
	StepIDBuy:           true,
	StepIDSell:          true,
	StepIDCancel:        true,
	StepIDCreateListing: true,
	StepIDCreateOffer:   true,
}

var signatureStepIDs = map[StepID]bool{
	StepIDSignEIP191: true,
	StepIDSignEIP712: true,
}

// IsTransactionStep reports whether a step dispatches an on-chain
// transaction. Classification is by id only; the presence of calldata or
// typed-data fields is never consulted.
func IsTransactionStep(id StepID) bool {
	return transactionStepIDs[id]
}

// IsSignatureStep reports whether a step requests a detached signature.
func IsSignatureStep(id StepID) bool {
	return signatureStepIDs[id]
}

func findStep(steps []*Step, id StepID) *Step {
	for _, s := range steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}
