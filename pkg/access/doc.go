// Package access decides whether a user may see a given report.
//
// The decision is a pure function of the subject and their permission rows;
// nothing here touches the network. The evaluation is deliberately
// conservative: an unsynced subject or an unfetched permission set fails
// closed, and category-scoped grants do not gate individual reports (they
// only affect listing).
package access
