package bankfeed

// PlaidClassifier implements Plaid's sign convention: positive amounts are
// money leaving the account holder. On a credit account a positive amount is
// a charge; on a depository account a negative amount is a withdrawal.
type PlaidClassifier struct{}

func (PlaidClassifier) Classify(c Candidate) Decision {
	if !c.AccountType.Supported() {
		return Unsupported
	}
	switch c.AccountType {
	case AccountCredit:
		if c.Amount.Sign() > 0 {
			return Expense
		}
	case AccountDepository:
		if c.Amount.Sign() < 0 {
			return Expense
		}
	}
	return NotExpense
}

// TellerClassifier implements Teller's sign convention: negative amounts are
// outgoing regardless of account type.
type TellerClassifier struct{}

func (TellerClassifier) Classify(c Candidate) Decision {
	if !c.AccountType.Supported() {
		return Unsupported
	}
	if c.Amount.Sign() < 0 {
		return Expense
	}
	return NotExpense
}

var (
	_ Classifier = PlaidClassifier{}
	_ Classifier = TellerClassifier{}
)
