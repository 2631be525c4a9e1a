package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Account is the subset of a Salesforce Account the uploader reads.
type Account struct {
	ID      string `json:"Id" salesforce:"Id"`
	Name    string `json:"Name" salesforce:"Name"`
	Website string `json:"Website" salesforce:"Website"`
}

// Contact is the subset of a Salesforce Contact the uploader reads.
type Contact struct {
	ID        string `json:"Id" salesforce:"Id"`
	AccountID string `json:"AccountId" salesforce:"AccountId"`
	FirstName string `json:"FirstName" salesforce:"FirstName"`
	LastName  string `json:"LastName" salesforce:"LastName"`
	Title     string `json:"Title" salesforce:"Title"`
}

// FindAccountByWebsite returns the Account whose Website contains domain, or
// nil when there is none.
func FindAccountByWebsite(ctx context.Context, c Client, domain string) (*Account, error) {
	soql := fmt.Sprintf(
		"SELECT Id, Name, Website FROM Account WHERE Website LIKE '%%%s%%' LIMIT 1",
		escapeSoql(domain),
	)

	var accounts []Account
	if err := c.Query(ctx, soql, &accounts); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find account by website %s", domain))
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

// FindContact returns the Contact on accountID with the given name, or nil.
func FindContact(ctx context.Context, c Client, accountID, firstName, lastName string) (*Contact, error) {
	soql := fmt.Sprintf(
		"SELECT Id, AccountId, FirstName, LastName, Title FROM Contact WHERE AccountId = '%s' AND FirstName = '%s' AND LastName = '%s' LIMIT 1",
		escapeSoql(accountID),
		escapeSoql(firstName),
		escapeSoql(lastName),
	)

	var contacts []Contact
	if err := c.Query(ctx, soql, &contacts); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find contact %s %s", firstName, lastName))
	}
	if len(contacts) == 0 {
		return nil, nil
	}
	return &contacts[0], nil
}

// UpsertAccount returns the id of the Account for domain, creating one named
// name when none exists. It reports whether an Account was created.
func UpsertAccount(ctx context.Context, c Client, name, domain string) (string, bool, error) {
	if strings.TrimSpace(name) == "" {
		return "", false, eris.New("sf: account Name is required")
	}

	existing, err := FindAccountByWebsite(ctx, c, domain)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		return existing.ID, false, nil
	}

	id, err := c.InsertOne(ctx, "Account", map[string]any{
		"Name":    name,
		"Website": domain,
	})
	if err != nil {
		return "", false, eris.Wrap(err, "sf: create account")
	}
	return id, true, nil
}

// UpsertContact creates or updates the Contact named fullName on accountID.
// fields are written in both cases. It reports whether a Contact was created.
func UpsertContact(ctx context.Context, c Client, accountID, fullName string, fields map[string]any) (string, bool, error) {
	if accountID == "" {
		return "", false, eris.New("sf: account id is required for contact")
	}
	first, last := SplitName(fullName)
	if last == "" {
		return "", false, eris.New("sf: contact LastName is required")
	}

	existing, err := FindContact(ctx, c, accountID, first, last)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		if err := c.UpdateOne(ctx, "Contact", existing.ID, fields); err != nil {
			return "", false, eris.Wrap(err, fmt.Sprintf("sf: update contact %s", existing.ID))
		}
		return existing.ID, false, nil
	}

	record := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		record[k] = v
	}
	record["AccountId"] = accountID
	record["FirstName"] = first
	record["LastName"] = last

	id, err := c.InsertOne(ctx, "Contact", record)
	if err != nil {
		return "", false, eris.Wrap(err, fmt.Sprintf("sf: create contact for account %s", accountID))
	}
	return id, true, nil
}

// SplitName splits a full name into first and last name. A single word is
// treated as the last name, which Salesforce requires.
func SplitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return "", parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
	}
}

// escapeSoql escapes SOQL string literal metacharacters.
func escapeSoql(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}
